package remote

import (
	"bufio"
	"bytes"
	"io"
)

// eventScanner is a minimal server-sent-events reader: event/data lines,
// blank line terminates the event. Comments and other fields are ignored.
type eventScanner struct {
	scanner *bufio.Scanner
}

func newEventScanner(r io.Reader) *eventScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	return &eventScanner{scanner: sc}
}

func (s *eventScanner) next() (string, []byte, error) {
	var name string
	var data bytes.Buffer

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		switch {
		case len(line) == 0:
			if name != "" || data.Len() > 0 {
				return name, data.Bytes(), nil
			}
		case bytes.HasPrefix(line, []byte("event:")):
			name = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimSpace(line[len("data:"):]))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	return "", nil, io.EOF
}
