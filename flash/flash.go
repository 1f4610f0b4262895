/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package flash persists a node's long-lived keying material (preshared
// secrets, certificates — whatever a scheme.Provider needs to survive a
// reboot) to a byte-addressable backing file, standing in for the
// original firmware's xmem_pwrite/xmem_pread/xmem_erase helpers over
// external serial flash.
package flash

import (
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Log is an append-only region of a backing file, anchored at a fixed
// keying-material offset, with an erase-then-append write discipline:
// Erase wipes the whole region and resets the append cursor to 0, and
// every Append call advances the cursor by what it wrote, mirroring
// apkes_flash_append_keying_material's running keying_material_offset.
type Log struct {
	mu sync.Mutex

	f             *os.File
	baseOffset    int64
	eraseUnitSize int
	cursor        int64
}

// Open opens (creating if absent) path as the backing file for a Log
// whose keying-material region starts at baseOffset and spans
// eraseUnitSize bytes.
func Open(path string, baseOffset int64, eraseUnitSize int) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("apkes/flash: opening %s: %w", path, err)
	}
	return &Log{f: f, baseOffset: baseOffset, eraseUnitSize: eraseUnitSize}, nil
}

// Close closes the backing file.
func (l *Log) Close() error {
	return l.f.Close()
}

// Erase zeroes the whole keying-material region and resets the append
// cursor, matching apkes_flash_erase_keying_material.
func (l *Log) Erase() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	zeros := make([]byte, l.eraseUnitSize)
	if _, err := l.f.WriteAt(zeros, l.baseOffset); err != nil {
		return fmt.Errorf("apkes/flash: erasing keying material: %w", err)
	}
	l.cursor = 0
	log.Debugf("apkes/flash: erased %d bytes at offset %d", l.eraseUnitSize, l.baseOffset)
	return nil
}

// Append writes keyingMaterial at the current cursor and advances it,
// matching apkes_flash_append_keying_material.
func (l *Log) Append(keyingMaterial []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor+int64(len(keyingMaterial)) > int64(l.eraseUnitSize) {
		return fmt.Errorf("apkes/flash: append of %d bytes at cursor %d overruns %d-byte region", len(keyingMaterial), l.cursor, l.eraseUnitSize)
	}
	if _, err := l.f.WriteAt(keyingMaterial, l.baseOffset+l.cursor); err != nil {
		return fmt.Errorf("apkes/flash: appending keying material: %w", err)
	}
	l.cursor += int64(len(keyingMaterial))
	return nil
}

// Restore reads len(buf) bytes starting at offset within the
// keying-material region into buf, matching
// apkes_flash_restore_keying_material. offset is relative to the
// region's base, not the backing file.
func (l *Log) Restore(buf []byte, offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.ReadAt(buf, l.baseOffset+offset); err != nil {
		return fmt.Errorf("apkes/flash: restoring keying material at offset %d: %w", offset, err)
	}
	return nil
}
