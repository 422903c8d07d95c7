package types

// Result is the return contract of a check function.
type Result struct {
	Message string `json:"message"`
	Passed  bool   `json:"passed"`
}

// EvaluationResult is one check outcome recorded on a resource.
type EvaluationResult struct {
	Check   string `json:"check"`
	Message string `json:"message"`
	Passed  bool   `json:"passed"`
}

// Pass builds a passing result.
func Pass(message string) Result {
	return Result{Message: message, Passed: true}
}

// Fail builds a failing result.
func Fail(message string) Result {
	return Result{Message: message, Passed: false}
}

// Account describes one account to scan: a credential profile, an optional
// role to assume, and the regions to cover.
type Account struct {
	Profile string   `yaml:"profile" json:"profile"`
	Role    string   `yaml:"role,omitempty" json:"role,omitempty"`
	Regions []string `yaml:"regions" json:"regions"`
}
