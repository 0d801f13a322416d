// Package protocol names the control codes exchanged between chat peers and
// maps them to the sentinel strings carried on the wire.
package protocol

import "fmt"

// Control is a protocol control code. Text that is not a control code
// classifies as None.
type Control int

const (
	None Control = iota
	Disconnect
	UsernameExists
	Proceed
	Empty
	Error
)

func (c Control) String() string {
	switch c {
	case None:
		return "none"
	case Disconnect:
		return "disconnect"
	case UsernameExists:
		return "username-exists"
	case Proceed:
		return "proceed"
	case Empty:
		return "empty"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

// Sentinels holds the wire strings for each control code.
type Sentinels struct {
	Disconnect     string
	UsernameExists string
	Proceed        string
	Empty          string
	Error          string
}

// DefaultSentinels returns the strings used by the reference protocol.
func DefaultSentinels() Sentinels {
	return Sentinels{
		Disconnect:     "!quit",
		UsernameExists: "Username exists",
		Proceed:        "Proceed",
		Empty:          "Empty",
		Error:          "Error encountered",
	}
}

// Text returns the wire string for c, or "" for None and unknown codes.
func (s Sentinels) Text(c Control) string {
	switch c {
	case Disconnect:
		return s.Disconnect
	case UsernameExists:
		return s.UsernameExists
	case Proceed:
		return s.Proceed
	case Empty:
		return s.Empty
	case Error:
		return s.Error
	default:
		return ""
	}
}

// Classify maps text received from a peer to its control code. Matching is
// exact.
func (s Sentinels) Classify(text string) Control {
	switch text {
	case s.Disconnect:
		return Disconnect
	case s.UsernameExists:
		return UsernameExists
	case s.Proceed:
		return Proceed
	case s.Empty:
		return Empty
	case s.Error:
		return Error
	default:
		return None
	}
}

// Validate reports an error when a sentinel is empty or two sentinels share
// the same text, since either makes Classify ambiguous.
func (s Sentinels) Validate() error {
	seen := make(map[string]Control)
	for _, c := range []Control{Disconnect, UsernameExists, Proceed, Empty, Error} {
		text := s.Text(c)
		if text == "" {
			return fmt.Errorf("protocol: %s sentinel is empty", c)
		}
		if other, ok := seen[text]; ok {
			return fmt.Errorf("protocol: %s and %s sentinels share %q", other, c, text)
		}
		seen[text] = c
	}
	return nil
}
