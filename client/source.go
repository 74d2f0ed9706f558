/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eapache/queue"
)

// Source supplies the messages of one session. Next may block, false ends the session.
type Source interface {
	Next() (string, bool)
}

type lineSource struct {
	scan *bufio.Scanner
}

// NewLineSource reads one message per line, blank lines are skipped.
func NewLineSource(r io.Reader) Source {
	return &lineSource{scan: bufio.NewScanner(r)}
}

func (v *lineSource) Next() (string, bool) {
	for v.scan.Scan() {
		line := strings.TrimSpace(v.scan.Text())
		if len(line) == 0 {
			continue
		}
		return line, true
	}
	return "", false
}

type promptSource struct {
	Source
	w      io.Writer
	prompt string
	once   sync.Once
}

// NewPromptSource writes prompt to w right before the first message is requested.
// A session asks for it only once the connection is established.
func NewPromptSource(src Source, w io.Writer, prompt string) Source {
	return &promptSource{Source: src, w: w, prompt: prompt}
}

func (v *promptSource) Next() (string, bool) {
	v.once.Do(func() {
		fmt.Fprintln(v.w, v.prompt) //nolint:errcheck
	})
	return v.Source.Next()
}

type QueueSource struct {
	mux sync.Mutex
	q   *queue.Queue
}

func NewQueueSource(msgs ...string) *QueueSource {
	v := &QueueSource{q: queue.New()}
	for _, msg := range msgs {
		v.Push(msg)
	}
	return v
}

// Push appends a message, blank ones are dropped.
func (v *QueueSource) Push(msg string) {
	msg = strings.TrimSpace(msg)
	if len(msg) == 0 {
		return
	}
	v.mux.Lock()
	v.q.Add(msg)
	v.mux.Unlock()
}

func (v *QueueSource) Len() int {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.q.Length()
}

func (v *QueueSource) Next() (string, bool) {
	v.mux.Lock()
	defer v.mux.Unlock()
	if v.q.Length() == 0 {
		return "", false
	}
	msg, ok := v.q.Remove().(string)
	return msg, ok
}
