package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	pythonDefPattern = regexp.MustCompile(`(?m)^def\s+(\w+)\s*\(`)
	jsFuncPattern    = regexp.MustCompile(`(?m)^function\s+(\w+)\s*\(`)
	jsConstPattern   = regexp.MustCompile(`(?m)^(?:const|let|var)\s+(\w+)\s*=`)
)

// wrapProgram appends a driver call so the candidate's top-level function
// runs against the test input and prints its result as the last line of
// stdout. The input string is a literal expression in the target language.
func wrapProgram(code, language, input string) (string, error) {
	switch strings.ToLower(language) {
	case "python":
		name := firstCapture(pythonDefPattern, code)
		if name == "" {
			return "", fmt.Errorf("no function definition found in python code")
		}
		return code + fmt.Sprintf("\n\nprint(%s(%s))\n", name, input), nil
	case "javascript":
		name := firstCapture(jsFuncPattern, code)
		if name == "" {
			name = firstCapture(jsConstPattern, code)
		}
		if name == "" {
			return "", fmt.Errorf("no function definition found in javascript code")
		}
		return code + fmt.Sprintf("\n\nconsole.log(%s(%s));\n", name, input), nil
	default:
		return "", fmt.Errorf("unsupported language %q", language)
	}
}

func firstCapture(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// interpreterCmd returns the container command that runs an inline program.
func interpreterCmd(language, program string) ([]string, error) {
	switch strings.ToLower(language) {
	case "python":
		return []string{"python3", "-c", program}, nil
	case "javascript":
		return []string{"node", "-e", program}, nil
	default:
		return nil, fmt.Errorf("unsupported language %q", language)
	}
}

// lastLine returns the final non-empty line of program output. Candidate
// code may print debugging noise; only the driver's trailing print is
// compared against the expected value.
func lastLine(output string) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
