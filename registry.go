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

package nfctag

import (
	"slices"

	"github.com/rs/zerolog"
)

// TechEntry is one technology of the tag in the field. Several entries can
// share a handle when one activation exposes more than one technology.
type TechEntry struct {
	Params     RFParams
	Handle     int
	Protocol   Protocol
	Technology Technology
}

// Registry holds the ordered technology list of the current tag, or of the
// candidates collected during a multi-target discovery round. Index 0 is the
// primary technology of the most recent activation.
//
// Registry is not safe for concurrent use; the owning Session serializes
// access with its lock.
type Registry struct {
	log     zerolog.Logger
	entries []TechEntry
	max     int
}

// NewRegistry creates an empty registry holding at most max entries.
func NewRegistry(maxEntries int) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxTechnologies
	}
	return &Registry{
		entries: make([]TechEntry, 0, maxEntries),
		max:     maxEntries,
		log:     componentLogger("registry"),
	}
}

// Reset drops every entry.
func (r *Registry) Reset() {
	clear(r.entries)
	r.entries = r.entries[:0]
}

// Append adds an entry. At capacity the entry is dropped and logged; the
// return value reports whether it was stored.
func (r *Registry) Append(e TechEntry) bool {
	if len(r.entries) >= r.max {
		r.log.Warn().
			Err(ErrCapacityExceeded).
			Int("max", r.max).
			Stringer("technology", e.Technology).
			Int("handle", e.Handle).
			Msg("dropping technology")
		return false
	}
	r.entries = append(r.entries, e)
	return true
}

// AppendAll appends each entry in order and returns how many were stored.
func (r *Registry) AppendAll(entries []TechEntry) int {
	n := 0
	for _, e := range entries {
		if r.Append(e) {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Cap returns the maximum number of entries.
func (r *Registry) Cap() int {
	return r.max
}

// At returns the entry at index i.
func (r *Registry) At(i int) (TechEntry, bool) {
	if i < 0 || i >= len(r.entries) {
		return TechEntry{}, false
	}
	return r.entries[i], true
}

// Entries returns a copy of the entries in order.
func (r *Registry) Entries() []TechEntry {
	return slices.Clone(r.entries)
}

// IndexOf returns the index of the first entry with the given technology,
// or -1.
func (r *Registry) IndexOf(tech Technology) int {
	return slices.IndexFunc(r.entries, func(e TechEntry) bool {
		return e.Technology == tech
	})
}

// Handles returns the distinct handles in first-seen order.
func (r *Registry) Handles() []int {
	handles := make([]int, 0, len(r.entries))
	for _, e := range r.entries {
		if !slices.Contains(handles, e.Handle) {
			handles = append(handles, e.Handle)
		}
	}
	return handles
}

// AddDiscovery accumulates the entries of one discovery result. It returns
// true when the result was the last of the round, at which point the
// collected entries are final.
func (r *Registry) AddDiscovery(res *DiscoveryResult) bool {
	r.AppendAll(ResolveDiscovery(res))
	r.log.Debug().
		Int("handle", res.Handle).
		Stringer("protocol", res.Protocol).
		Bool("more", res.HasMore).
		Int("count", len(r.entries)).
		Msg("discovery result")
	return !res.HasMore
}
