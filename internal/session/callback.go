package session

import (
	"fmt"
	"strings"

	"anya-bot/internal/surface"
)

// CallbackPrefix marks button data addressed to a session.
const CallbackPrefix = "s:"

// EncodeCallback builds button data routing payload to conversation id.
func EncodeCallback(id, payload string) string {
	return fmt.Sprintf("%s%s|%s", CallbackPrefix, id, payload)
}

// DecodeCallback splits button data into conversation id and payload.
func DecodeCallback(data string) (id, payload string, ok bool) {
	rest, found := strings.CutPrefix(data, CallbackPrefix)
	if !found {
		return "", "", false
	}
	id, payload, ok = strings.Cut(rest, "|")
	if !ok || id == "" {
		return "", "", false
	}
	return id, payload, true
}

// Bind rewrites every action in msg so its data routes back to session id.
func Bind(id string, msg surface.Message) surface.Message {
	if len(msg.Actions) == 0 {
		return msg
	}
	rows := make([][]surface.Action, len(msg.Actions))
	for i, row := range msg.Actions {
		rows[i] = make([]surface.Action, len(row))
		for j, a := range row {
			rows[i][j] = surface.Action{Label: a.Label, Data: EncodeCallback(id, a.Data)}
		}
	}
	msg.Actions = rows
	return msg
}
