/*
 Copyright 2013-2014 Canonical Ltd.

 This program is free software: you can redistribute it and/or modify it
 under the terms of the GNU General Public License version 3, as published
 by the Free Software Foundation.

 This program is distributed in the hope that it will be useful, but
 WITHOUT ANY WARRANTY; without even the implied warranties of
 MERCHANTABILITY, SATISFACTORY QUALITY, or FITNESS FOR A PARTICULAR
 PURPOSE.  See the GNU General Public License for more details.

 You should have received a copy of the GNU General Public License along
 with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package history keeps a record of the exchanges the command line
// client made.
package history

import (
	"sort"
	"sync"
	"time"
)

// Entry describes one exchange.
type Entry struct {
	When    time.Time
	Method  string
	URL     string
	Status  int // 0 when no response was received
	Err     string
	Elapsed time.Duration
}

type History interface {
	// Record() adds an entry.
	Record(e Entry) error
	// Recent() returns up to n entries, newest first.
	Recent(n int) ([]Entry, error)
	// Close() releases the backing store.
	Close() error
}

type memHistory struct {
	lock    sync.Mutex
	entries []Entry
}

// NewHistory returns an implementation of History that is memory-based
// and does not save anything.
func NewHistory() (History, error) {
	return &memHistory{}, nil
}

func (m *memHistory) Record(e Entry) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) Recent(n int) ([]Entry, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		res[len(res)-1-i] = e
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].When.After(res[j].When) })
	if n >= 0 && n < len(res) {
		res = res[:n]
	}
	return res, nil
}

func (m *memHistory) Close() error {
	return nil
}

var _ History = (*memHistory)(nil)
