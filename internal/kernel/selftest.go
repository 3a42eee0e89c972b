package kernel

import "github.com/superkooks/bootcon/internal/qemu"

// Test is an in-kernel self test. A test fails by panicking.
type Test struct {
	Name string
	Fn   func()
}

// RunTests runs tests in order on the console, then exits QEMU with Success.
// The first failing test exits with Failed and the rest are skipped. It
// reports whether every test passed.
func (k *Kernel) RunTests(tests []Test) (passed bool) {
	k.Console.PrintSafe("Running %d tests\n", len(tests))
	for _, t := range tests {
		if !k.runTest(t) {
			return false
		}
	}
	k.Exit(qemu.Success)
	return true
}

func (k *Kernel) runTest(t Test) (ok bool) {
	k.Console.PrintSafe("%s...\t", t.Name)
	defer func() {
		if r := recover(); r != nil {
			k.Console.PrintSafe("[failed]\n")
			k.Console.PrintSafe("Error: %v\n", r)
			k.Serial.PrintSafe("[failed] %s: %v\n", t.Name, r)
			k.Exit(qemu.Failed)
			ok = false
		}
	}()

	t.Fn()
	k.Console.PrintSafe("[ok]\n")
	return true
}
