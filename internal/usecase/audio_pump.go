package usecase

import (
	"errors"
	"fmt"
	"io"

	"limecap/internal/audio"
	"limecap/internal/domain"
	"limecap/internal/ports"
)

// pumpAudio moves PCM chunks from the capture session into the artifact
// file, the recovery ring, and the silence monitor's level signal. A write
// failure stops persisting to the file but keeps the ring and level samples
// alive so the session can still recover the tail and auto-stop.
func pumpAudio(
	src ports.AudioSession,
	dst io.Writer,
	ring *audio.Ring,
	sample func(level float64),
	chunkSize int,
	events ports.EventSink,
	onWriteErr func(error),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if ring != nil {
				_, _ = ring.Write(chunk)
			}
			if sample != nil {
				sample(audio.RMSLevel(chunk))
			}
			if dst != nil {
				if _, werr := dst.Write(chunk); werr != nil {
					onWriteErr(werr)
					events.SessionError(domain.ErrorCodeStorage, fmt.Sprintf("failed to persist audio: %v", werr))
					dst = nil
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				events.SessionError(domain.ErrorCodeAudioStop, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// consumeAlerts feeds intelligence alerts into the urgency controller until
// the stream closes.
func consumeAlerts(stream ports.AlertStream, sink alertSink, done chan struct{}) {
	defer close(done)

	for alert := range stream.Alerts() {
		sink.OnAlert(alert)
	}
}
