package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// payload makes a request body replayable for retries. Seekable bodies such
// as files are rewound and streamed again; anything else is read into
// memory once.
type payload struct {
	seeker io.ReadSeeker
	offset int64
	size   int64
	data   []byte
}

func newPayload(body io.Reader) (*payload, error) {
	if body == nil {
		return nil, nil
	}
	// Pipes and terminals implement Seek but fail on it; they are buffered.
	if b, ok := body.(io.ReadSeeker); ok {
		if offset, err := b.Seek(0, io.SeekCurrent); err == nil {
			return seekable(b, offset)
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	return &payload{data: data, size: int64(len(data))}, nil
}

func seekable(b io.ReadSeeker, offset int64) (*payload, error) {
	end, err := b.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	if _, err := b.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	return &payload{seeker: b, offset: offset, size: end - offset}, nil
}

func (p *payload) open() (io.ReadCloser, error) {
	if p.seeker == nil {
		return io.NopCloser(bytes.NewReader(p.data)), nil
	}
	if _, err := p.seeker.Seek(p.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	// The caller owns the file; the transport must not close it.
	return io.NopCloser(p.seeker), nil
}

// attach sets a fresh body on req.
func (p *payload) attach(req *http.Request) error {
	if p == nil {
		req.Body = nil
		req.GetBody = nil
		req.ContentLength = 0
		return nil
	}
	body, err := p.open()
	if err != nil {
		return err
	}
	req.Body = body
	req.GetBody = p.open
	req.ContentLength = p.size
	if p.size == 0 {
		req.Body = http.NoBody
	}
	return nil
}
