package pdfcheck

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var errNotPDF = errors.New("payload is not a PDF document")

type Inspector struct{}

func NewInspector() *Inspector {
	return &Inspector{}
}

// PageCount parses data as a PDF. The parser panics on some malformed inputs,
// which is reported as an error.
func (i *Inspector) PageCount(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, errNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return reader.NumPage(), nil
}
