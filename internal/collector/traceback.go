package collector

import (
	"fmt"
	"runtime"
	"strings"
)

const maxFrames = 32

var selfPackage = funcPackage(func() string {
	pc, _, _, _ := runtime.Caller(0)
	return runtime.FuncForPC(pc).Name()
}())

func funcPackage(name string) string {
	slash := strings.LastIndex(name, "/")
	if dot := strings.Index(name[slash+1:], "."); dot >= 0 {
		return name[:slash+1+dot]
	}
	return name
}

// Traceback renders the caller's stack, innermost frame last, two lines per frame:
//
//	File "<path>", line <n>, in <function>
//	    <function>
//
// Frames from the runtime, database/sql and this package are left out.
func Traceback(skip int) string {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var lines []string
	for {
		f, more := frames.Next()
		if keepFrame(f) {
			lines = append(lines,
				fmt.Sprintf("File %q, line %d, in %s", f.File, f.Line, shortFunc(f.Function)),
				"    "+f.Function,
			)
		}
		if !more {
			break
		}
	}

	// outermost first
	out := make([]string, 0, len(lines))
	for i := len(lines) - 2; i >= 0; i -= 2 {
		out = append(out, lines[i], lines[i+1])
	}
	return strings.Join(out, "\n")
}

func keepFrame(f runtime.Frame) bool {
	switch {
	case f.Function == "":
		return false
	case strings.HasPrefix(f.Function, "runtime."), strings.HasPrefix(f.Function, "database/sql."):
		return false
	case funcPackage(f.Function) == selfPackage && !strings.HasSuffix(f.File, "_test.go"):
		return false
	}
	return true
}

func shortFunc(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
