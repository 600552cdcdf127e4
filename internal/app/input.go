package app

import (
	tea "github.com/charmbracelet/bubbletea"
)

var keySequences = map[tea.KeyType]string{
	tea.KeyUp:       "\x1b[A",
	tea.KeyDown:     "\x1b[B",
	tea.KeyRight:    "\x1b[C",
	tea.KeyLeft:     "\x1b[D",
	tea.KeyHome:     "\x1b[H",
	tea.KeyEnd:      "\x1b[F",
	tea.KeyInsert:   "\x1b[2~",
	tea.KeyDelete:   "\x1b[3~",
	tea.KeyPgUp:     "\x1b[5~",
	tea.KeyPgDown:   "\x1b[6~",
	tea.KeyShiftTab: "\x1b[Z",
	tea.KeySpace:    " ",
	tea.KeyF1:       "\x1bOP",
	tea.KeyF2:       "\x1bOQ",
	tea.KeyF3:       "\x1bOR",
	tea.KeyF4:       "\x1bOS",
}

// keyBytes translates a key press into what a VT100 keyboard sends.
func keyBytes(msg tea.KeyMsg) []byte {
	var out []byte
	switch {
	case msg.Type == tea.KeyRunes:
		out = []byte(string(msg.Runes))
	case msg.Type >= 0 && msg.Type < 32, msg.Type == 127:
		out = []byte{byte(msg.Type)}
	default:
		seq, ok := keySequences[msg.Type]
		if !ok {
			return nil
		}
		out = []byte(seq)
	}
	if msg.Paste {
		out = append(append([]byte("\x1b[200~"), out...), "\x1b[201~"...)
	}
	if msg.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}
