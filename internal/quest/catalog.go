package quest

import "fmt"

// Catalog returns the four access-control stages in play order.
func Catalog() []Stage {
	return []Stage{
		{
			ID:     1,
			Label:  "Entrance",
			Prompt: "At the building entrance, which credential do you present to the attendant?",
			Choices: []Choice{
				{Label: "A. Place your thumb on a reader"},
				{Label: "B. Show a selfie from your phone"},
				{Label: "C. Present your Employee ID card (swapped card allowed)", Correct: true},
				{Label: "D. Provide an iris image"},
			},
			Note:         "Secure card-based entry with swap detection and credential validation.",
			FailDoesExit: false,
			FailMessage:  "Wrong item — guard still lets you inside but marks you suspicious.",
		},
		{
			ID:     2,
			Label:  "Security Area",
			Prompt: "A camera asks for a live facial match — what do you present to the camera?",
			Choices: []Choice{
				{Label: "A. Look directly into the camera for a live face match", Correct: true},
				{Label: "B. Hold up your ID card to the camera"},
				{Label: "C. Show your thumb to the camera"},
				{Label: "D. Show a printed eye photo"},
			},
			Note:         "Liveness and face-matching resistant to spoof attempts and securely logged.",
			FailDoesExit: true,
			FailMessage:  "Camera mismatch — you are escorted out.",
		},
		{
			ID:     3,
			Label:  "Iris Gate",
			Prompt: "The inner gate requires a high-security biometric; which do you present?",
			Choices: []Choice{
				{Label: "A. Step in for a face scan"},
				{Label: "B. Present an iris/eye scan to the reader", Correct: true},
				{Label: "C. Swipe your ID card"},
				{Label: "D. Try thumb reader input"},
			},
			Note:         "Fast, contactless iris recognition for high-security gate control with low false accepts.",
			FailDoesExit: true,
			FailMessage:  "Wrong biometric — access denied.",
		},
		{
			ID:     4,
			Label:  "Desk Access",
			Prompt: "At the desk terminal, which method grants local device or desk access?",
			Choices: []Choice{
				{Label: "A. Provide an iris image"},
				{Label: "B. Show your face to a nearby camera"},
				{Label: "C. Swipe or present an ID card"},
				{Label: "D. Press your thumb on the fingerprint sensor", Correct: true},
			},
			Note:         "Reliable fingerprint/thumb authentication for desk-level access and equipment unlocking.",
			FailDoesExit: true,
			FailMessage:  "Wrong access method — escorted out.",
		},
	}
}

// ValidateCatalog checks the authoring invariants: stages numbered 1..n in
// order, and exactly one correct choice per stage.
func ValidateCatalog(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	for i, s := range stages {
		if s.ID != i+1 {
			return fmt.Errorf("stage at position %d has id %d, want %d", i, s.ID, i+1)
		}
		correct := 0
		for _, c := range s.Choices {
			if c.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("stage %d has %d correct choices, want exactly 1", s.ID, correct)
		}
	}
	return nil
}

// Solution is one line of the post-success solutions summary.
type Solution struct {
	StageID int
	Label   string
	Answer  string
}

// Solutions returns the correct choice for every stage, shown on the
// success screen after a completed run.
func Solutions(stages []Stage) []Solution {
	sols := make([]Solution, 0, len(stages))
	for _, s := range stages {
		for _, c := range s.Choices {
			if c.Correct {
				sols = append(sols, Solution{StageID: s.ID, Label: s.Label, Answer: c.Label})
				break
			}
		}
	}
	return sols
}

// CorrectChoice returns the index of the stage's correct choice, or -1 if
// the stage has none.
func CorrectChoice(s Stage) int {
	for i, c := range s.Choices {
		if c.Correct {
			return i
		}
	}
	return -1
}

// TruncateName trims a player name to the stored maximum.
func TruncateName(name string) string {
	if len(name) > MaxPlayerName {
		return name[:MaxPlayerName]
	}
	return name
}
