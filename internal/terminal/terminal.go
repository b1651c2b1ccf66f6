// Package terminal defines the minimal primitive surface a live display
// needs from the actual screen — size, clearing, writing a frame, and
// non-blocking single-key reads — and one concrete ANSI implementation.
// The primitives themselves (cursor addressing, raw mode) are the only
// concrete implementation this program ships; anything fancier (curses,
// tcell) is explicitly out of scope, the interface is what matters.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Terminal is the primitive surface the display layer depends on.
type Terminal interface {
	// Size returns the current column/row count.
	Size() (cols, rows int, err error)
	// Clear erases the screen and homes the cursor.
	Clear()
	// WriteFrame writes one fully-rendered frame to the screen.
	WriteFrame(s string)
	// ReadKey returns the next keypress without blocking; ok is false if
	// no key is currently available.
	ReadKey() (r rune, ok bool)
	// Restore undoes any raw-mode terminal state changes; call on exit.
	Restore() error
}

// ANSITerminal is the concrete Terminal backed by raw ANSI escape
// sequences and termios, grounded on
// _examples/DanDo385-eth-rpc-monitor/internal/output/terminal.go's
// ClearScreen/MoveCursor approach, extended here with raw-mode key
// reading (curses' getch() equivalent) via golang.org/x/sys/unix termios
// manipulation.
type ANSITerminal struct {
	fd   int
	orig *unix.Termios
}

// NewANSITerminal puts stdin into raw, non-canonical, non-blocking mode so
// ReadKey can poll a single keystroke without waiting for Enter.
func NewANSITerminal() (*ANSITerminal, error) {
	fd := int(os.Stdin.Fd())

	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		// Not a terminal (e.g. piped input in a test); keys simply never
		// arrive, which is an acceptable degraded mode.
		return &ANSITerminal{fd: fd}, nil
	}

	raw := *orig
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}

	return &ANSITerminal{fd: fd, orig: orig}, nil
}

func (t *ANSITerminal) Restore() error {
	if t.orig == nil {
		return nil
	}
	return unix.IoctlSetTermios(t.fd, unix.TCSETS, t.orig)
}

func (t *ANSITerminal) Size() (int, int, error) {
	ws, err := unix.IoctlGetWinsize(t.fd, unix.TIOCGWINSZ)
	if err != nil {
		return 80, 24, err
	}
	return int(ws.Col), int(ws.Row), nil
}

func (t *ANSITerminal) Clear() {
	fmt.Print("\x1b[2J\x1b[H")
}

func (t *ANSITerminal) WriteFrame(s string) {
	fmt.Print("\x1b[H")
	fmt.Print(s)
}

// ReadKey does a non-blocking single-byte read; VMIN=0/VTIME=0 (set in
// NewANSITerminal) makes the underlying read return immediately whether or
// not a byte is ready.
func (t *ANSITerminal) ReadKey() (rune, bool) {
	buf := make([]byte, 1)
	n, err := os.Stdin.Read(buf)
	if err != nil || n == 0 {
		return 0, false
	}
	return rune(buf[0]), true
}
