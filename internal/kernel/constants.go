package kernel

import "github.com/superkooks/bootcon/internal/serial"

// DefaultSerialBase is the port the kernel logs through.
const DefaultSerialBase = serial.COM1

// Logo is printed to the console once it is up.
var Logo = []string{
	" _   _ _              _       ",
	"| | | | |_ ___  _ __ (_) __ _ ",
	"| | | | __/ _ \\| '_ \\| |/ _` |",
	"| |_| | || (_) | |_) | | (_| |",
	" \\___/ \\__\\___/| .__/|_|\\__,_|",
	"               |_|            ",
}

// StartupMessages are printed and logged, in order, at the end of boot.
var StartupMessages = []string{
	"=== UTOPIA KERNEL STARTED ===",
	"STEP 1: VGA INIT OK",
	"STEP 2: KERNEL RUNNING",
	"STEP 3: VGA OUTPUT TEST",
	"STEP 4: ALL SYSTEMS OK!",
	"=========================",
	"STEP 5: ENTERING MAIN LOOP...",
}
