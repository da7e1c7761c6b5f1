// Copyright 2025 Kadir Pekel
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

// Package periodic implements an update strategy that permits finalization
// only inside a configured weekly reboot window.
package periodic

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Window is a weekly recurring reboot window, e.g. Saturdays 01:00-03:00
// UTC.
type Window struct {
	StartHour, StartMinute int
	Length                 time.Duration
	Days                   map[time.Weekday]bool
}

// NewWindow parses a window from a "HH:MM" start time, a duration, and a
// list of weekday names ("Mon", "Tue", ...; empty means every day).
func NewWindow(start string, length time.Duration, days []string) (Window, error) {
	var h, m int
	if _, err := fmt.Sscanf(start, "%d:%d", &h, &m); err != nil {
		return Window{}, fmt.Errorf("invalid window_start %q: %w", start, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return Window{}, fmt.Errorf("invalid window_start %q: out of range", start)
	}

	dayset := map[time.Weekday]bool{}
	if len(days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			dayset[d] = true
		}
	} else {
		names := map[string]time.Weekday{
			"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
			"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
		}
		for _, name := range days {
			wd, ok := names[name]
			if !ok {
				return Window{}, fmt.Errorf("invalid weekday %q", name)
			}
			dayset[wd] = true
		}
	}

	return Window{StartHour: h, StartMinute: m, Length: length, Days: dayset}, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Days[t.Weekday()] {
		return false
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), w.StartHour, w.StartMinute, 0, 0, t.Location())
	end := start.Add(w.Length)
	return !t.Before(start) && t.Before(end)
}

// Strategy permits finalization only inside its configured Window, and
// always reports steady immediately (the window only gates reboot, not
// polling).
type Strategy struct {
	window Window
	now    func() time.Time
}

// New builds a periodic Strategy for window.
func New(window Window) *Strategy {
	return &Strategy{window: window, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Strategy) ReportSteady(ctx context.Context) bool { return true }

func (s *Strategy) CanFinalize(ctx context.Context) bool {
	return s.window.Contains(s.now())
}

func (s *Strategy) RecordDetails(ctx context.Context) {
	slog.Info("update strategy: periodic", "window_start_hour", s.window.StartHour, "window_start_minute", s.window.StartMinute, "window_length", s.window.Length)
}
