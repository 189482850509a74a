package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/melih/bpimage/internal/core/domain"
)

// SplitEvents decodes the daemon's JSON message stream in arrival order and
// emits one classified event per progress or error message. Messages that
// carry neither (status, aux) are skipped. It returns nil once the stream
// ends cleanly and the decode or transport error otherwise.
func SplitEvents(r io.Reader, emit func(domain.Event)) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode build event: %w", err)
		}

		switch {
		case msg.Error != nil && msg.Error.Message != "":
			emit(domain.Event{Kind: domain.EventError, Text: msg.Error.Message})
		case msg.ErrorMessage != "":
			emit(domain.Event{Kind: domain.EventError, Text: msg.ErrorMessage})
		case msg.Stream != "":
			emit(domain.Event{Kind: domain.EventProgress, Text: msg.Stream})
		}
	}
}

// unknownBuildError stands in for error events without text.
const unknownBuildError = "image build failed"

// Monitor drains a build event stream in the background. Progress goes to the
// logger, the first error message is latched, and completion resolves once.
type Monitor struct {
	logger *slog.Logger

	once    sync.Once
	done    chan struct{}
	latched string
	err     error
}

// Watch starts consuming stream and closes it when the stream ends.
func Watch(stream io.ReadCloser, logger *slog.Logger) *Monitor {
	m := &Monitor{logger: logger, done: make(chan struct{})}
	go func() {
		err := SplitEvents(stream, m.handle)
		stream.Close()
		m.resolve(err)
	}()
	return m
}

// handle runs on the consumer goroutine only.
func (m *Monitor) handle(ev domain.Event) {
	text := strings.TrimRight(ev.Text, "\r\n")
	switch ev.Kind {
	case domain.EventProgress:
		if text != "" {
			m.logger.Info(text)
		}
	case domain.EventError:
		if text == "" {
			text = unknownBuildError
		}
		m.logger.Error(text)
		if m.latched == "" {
			m.latched = text
		}
	}
}

func (m *Monitor) resolve(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

// Wait blocks until the stream has been fully drained and returns the
// latched error message, if any, and the completion error.
func (m *Monitor) Wait() (string, error) {
	<-m.done
	return m.latched, m.err
}
