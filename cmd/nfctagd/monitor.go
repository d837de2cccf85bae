// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/polling"
	"github.com/ZaparooProject/go-nfctag/tagops"
)

const writeTimeout = 30 * time.Second

func runReadMode(ctx context.Context, mon *polling.Monitor, session *nfctag.Session, cfg *config) error {
	mon.SetOnCardDetected(func(ctx context.Context, tag *nfctag.Tag) error {
		return readTag(ctx, session, tag, cfg)
	})
	mon.SetOnCardRemoved(func() {
		_, _ = fmt.Fprintln(cfg.out, "Tag removed - ready for next tag...")
	})

	_, _ = fmt.Fprintln(cfg.out, "Starting continuous tag monitoring. Press Ctrl+C to stop...")
	return mon.Start(ctx)
}

func runWriteMode(ctx context.Context, mon *polling.Monitor, session *nfctag.Session, cfg *config) error {
	if cfg.writeText == "" {
		return errors.New("writeText cannot be empty for write mode")
	}

	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- mon.Start(monCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// The monitor must be running before it accepts a write.
	for !mon.Running() {
		select {
		case err := <-done:
			return fmt.Errorf("monitor stopped: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	_, _ = fmt.Fprintf(cfg.out, "Waiting for tag to write text: %q\n", cfg.writeText)
	_, _ = fmt.Fprintln(cfg.out, "Please place a tag near the reader...")

	err := mon.WriteToNextTag(ctx, writeTimeout, func(ctx context.Context, tag *nfctag.Tag) error {
		printTag(tag, cfg)
		ops := tagops.New(session)
		if err := ops.DetectTag(ctx, tag); err != nil {
			return fmt.Errorf("failed to detect NDEF: %w", err)
		}
		_, _ = fmt.Fprintln(cfg.out, "Tag detected! Writing text...")
		if err := ops.WriteText(ctx, cfg.writeText); err != nil {
			return fmt.Errorf("failed to write NDEF message: %w", err)
		}
		_, _ = fmt.Fprintf(cfg.out, "Successfully wrote text to tag: %q\n", cfg.writeText)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(cfg.out, "Write operation cancelled.")
		}
		return fmt.Errorf("write operation failed: %w", err)
	}
	return nil
}

// readTag prints the tag and its NDEF message.
func readTag(ctx context.Context, session *nfctag.Session, tag *nfctag.Tag, cfg *config) error {
	printTag(tag, cfg)

	ops := tagops.New(session)
	if err := ops.DetectTag(ctx, tag); err != nil {
		if errors.Is(err, tagops.ErrUnsupportedTag) {
			_, _ = fmt.Fprintln(cfg.out, "  NDEF access not supported for this tag")
			return nil
		}
		return fmt.Errorf("failed to detect NDEF: %w", err)
	}

	msg, err := ops.ReadNDEF(ctx)
	if err != nil {
		return fmt.Errorf("failed to read NDEF message: %w", err)
	}
	if len(msg.Records) == 0 {
		_, _ = fmt.Fprintln(cfg.out, "  NDEF: empty")
		return nil
	}
	_, _ = fmt.Fprintf(cfg.out, "  NDEF: %s\n", msg.String())
	return nil
}

func printTag(tag *nfctag.Tag, cfg *config) {
	_, _ = fmt.Fprintf(cfg.out, "Tag detected: UID=%X Protocol=%s\n", tag.UID, tag.Protocol)
	_, _ = fmt.Fprint(cfg.out, describeTag(tag))
}

func describeTag(tag *nfctag.Tag) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "  NDEF type: %s\n", tag.NdefType)
	for _, tech := range tag.Technologies {
		_, _ = fmt.Fprintf(&b, "  %-20s handle=%d poll=%X act=%X\n",
			tech.Technology, tech.Handle, tech.PollBytes, tech.ActivationBytes)
	}
	return b.String()
}
