package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// stream pushes the current snapshot and then one message per publish.
// Publishes that happen while a write is in progress coalesce into the next
// message. Snapshots without data are not sent.
func (a *api) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, updates, cancel := a.store.Subscribe()
	defer cancel()
	a.metrics.StreamOpened()
	defer a.metrics.StreamClosed()
	log := a.log.WithField("subscriber", id)
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	// Drain client frames so close and pong control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var sent uint64
	send := func() error {
		snap, err := a.store.Current()
		if err != nil || snap.Version() == sent {
			return nil
		}
		sent = snap.Version()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	}
	if err := send(); err != nil {
		return
	}

	ping := time.NewTicker(a.pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := send(); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
