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

// Package nfctag discovers contactless tags behind an NCI controller and
// gives applications blocking access to them.
//
// A controller reports discovery, activation and deactivation as
// asynchronous events, and answers commands with completion events. A
// Session turns that stream into an ordered list of the technologies a tag
// exposes (NFC-A, ISO-DEP, MIFARE Ultralight, ...), tracks whether the tag
// is active, asleep or gone, and offers Connect, Transceive, PresenceCheck
// and NDEF operations that block until the matching completion arrives.
//
// The nci sub-package implements Controller over an NCI packet transport;
// MockController drives a Session in tests.
package nfctag
