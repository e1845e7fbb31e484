// Package format renders parsed messages for output.
package format

import (
	"fmt"
	"io"

	"github.com/kruss/chipmunk/internal/stream"
)

// Formatter writes one message to the output.
type Formatter interface {
	WriteMessage(w io.Writer, msg stream.Message) error
}

// Text writes the message text followed by a newline.
type Text struct{}

func (Text) WriteMessage(w io.Writer, msg stream.Message) error {
	if _, err := fmt.Fprintln(w, msg.String()); err != nil {
		return fmt.Errorf("write text message: %w", err)
	}
	return nil
}

// Binary writes the raw message bytes.
type Binary struct{}

func (Binary) WriteMessage(w io.Writer, msg stream.Message) error {
	if _, err := msg.WriteTo(w); err != nil {
		return fmt.Errorf("write binary message: %w", err)
	}
	return nil
}

// ByName resolves a formatter from its CLI name.
func ByName(name string) (Formatter, error) {
	switch name {
	case "text":
		return Text{}, nil
	case "binary":
		return Binary{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}
