package sandbox

import (
	"strings"
	"testing"
)

func TestWrapProgramPython(t *testing.T) {
	t.Parallel()
	code := "def two_sum(nums, target):\n    return []\n"
	program, err := wrapProgram(code, "python", "[2, 7, 11], 9")
	if err != nil {
		t.Fatalf("wrapProgram: %v", err)
	}
	if !strings.HasPrefix(program, code) {
		t.Error("wrapped program does not begin with candidate code")
	}
	if !strings.Contains(program, "print(two_sum([2, 7, 11], 9))") {
		t.Errorf("driver call missing:\n%s", program)
	}
}

func TestWrapProgramJavaScript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		code string
		want string
	}{
		{"function declaration", "function twoSum(nums, target) {\n  return [];\n}\n", "console.log(twoSum([1], 1));"},
		{"arrow binding", "const twoSum = (nums, target) => [];\n", "console.log(twoSum([1], 1));"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			program, err := wrapProgram(tt.code, "javascript", "[1], 1")
			if err != nil {
				t.Fatalf("wrapProgram: %v", err)
			}
			if !strings.Contains(program, tt.want) {
				t.Errorf("driver call missing, got:\n%s", program)
			}
		})
	}
}

func TestWrapProgramErrors(t *testing.T) {
	t.Parallel()
	if _, err := wrapProgram("x = 1\n", "python", "1"); err == nil {
		t.Error("expected error for code without a function")
	}
	if _, err := wrapProgram("def f(): pass", "ruby", "1"); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestInterpreterCmd(t *testing.T) {
	t.Parallel()
	cmd, err := interpreterCmd("python", "print(1)")
	if err != nil {
		t.Fatalf("interpreterCmd: %v", err)
	}
	if cmd[0] != "python3" || cmd[1] != "-c" {
		t.Errorf("python cmd = %v", cmd)
	}
	cmd, err = interpreterCmd("JavaScript", "console.log(1)")
	if err != nil {
		t.Fatalf("interpreterCmd: %v", err)
	}
	if cmd[0] != "node" || cmd[1] != "-e" {
		t.Errorf("javascript cmd = %v", cmd)
	}
}

func TestLastLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"\n\n", ""},
		{"[0, 1]\n", "[0, 1]"},
		{"debug noise\nmore noise\n[0, 1]\n", "[0, 1]"},
		{"result\n   \n\n", "result"},
	}
	for _, tt := range tests {
		if got := lastLine(tt.in); got != tt.want {
			t.Errorf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
