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

// Package admin serves the live neighbor table as JSON, the way
// ptp/sptp/client.JSONStats serves its counters: a small HTTP endpoint a
// separate CLI invocation (apkes-node neighbors) polls, rather than a
// shared-memory or unix-socket IPC mechanism.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/apkes-project/apkes/neighbor"
)

// NeighborView is the wire shape of one neighbor-table row.
type NeighborView struct {
	Extended   uint64 `json:"extended"`
	Short      uint16 `json:"short"`
	Status     string `json:"status"`
	LocalIndex uint8  `json:"local_index"`
}

// Server serves a snapshot of table over HTTP.
type Server struct {
	table neighbor.Table
}

// NewServer builds a Server backed by table.
func NewServer(table neighbor.Table) *Server {
	return &Server{table: table}
}

func (s *Server) handleNeighbors(w http.ResponseWriter, _ *http.Request) {
	all := s.table.All()
	views := make([]NeighborView, 0, len(all))
	for _, n := range all {
		n.Lock()
		views = append(views, NeighborView{
			Extended:   n.IDs.Extended,
			Short:      n.IDs.Short,
			Status:     n.Status.String(),
			LocalIndex: n.LocalIndex,
		})
		n.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Warningf("apkes/admin: encoding response: %v", err)
	}
}

// Serve blocks serving the /neighbors endpoint on addr until ctx is
// cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/neighbors", s.handleNeighbors)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("apkes/admin: serving neighbor table on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("apkes/admin: server: %w", err)
	}
}

// FetchNeighbors queries a running node's admin endpoint at addr (host:port,
// no scheme) for its current neighbor table.
func FetchNeighbors(addr string) ([]NeighborView, error) {
	resp, err := http.Get(fmt.Sprintf("http://%s/neighbors", addr))
	if err != nil {
		return nil, fmt.Errorf("apkes/admin: fetching %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apkes/admin: %s returned %s", addr, resp.Status)
	}
	var views []NeighborView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("apkes/admin: decoding response from %s: %w", addr, err)
	}
	return views, nil
}
