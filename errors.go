/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Error categories name the action that failed. They double as the event
// name the error is reported under.
const (
	errCreateRoom    = "createRoomError"
	errEnterRoom     = "enterRoomError"
	errDestructRoom  = "destructRoomError"
	errLeaveRoom     = "leaveRoomError"
	errStartGame     = "startGameError"
	errCheckSolution = "checkSolutionError"
	errUnspecific    = "unspecificError"
)

// Error types name why it failed.
const (
	errPlayerName     = "playerNameError"
	errMaxRooms       = "maxRoomsError"
	errRoomID         = "roomIdError"
	errMaxPlayers     = "maxPlayersError"
	errPermission     = "permissionError"
	errPlayerNotFound = "playerNotFoundError"
	errGameOngoing    = "gameOngoingError"
	errGameFinished   = "gameFinishedError"
	errUnknown        = "unknownError"
)

var errorCategories = map[string]string{
	errCreateRoom:    "Cannot create room",
	errEnterRoom:     "Cannot enter room",
	errDestructRoom:  "Cannot destruct room",
	errLeaveRoom:     "Cannot leave room",
	errStartGame:     "Cannot start game",
	errCheckSolution: "Cannot check solution",
	errUnspecific:    "Cannot proceed",
}

var errorTypes = map[string]string{
	errPlayerName:     "Player name is not accepted",
	errMaxRooms:       "Maximum number of rooms reached. Please try again later",
	errRoomID:         "Incorrect room ID. Please try with a correct one",
	errMaxPlayers:     "Maximum number of players reached. Please try in a different room",
	errPermission:     "Player does not have permission for this operation",
	errPlayerNotFound: "Cannot find player in room",
	errGameOngoing:    "Cannot interrupt ongoing game",
	errGameFinished:   "Game has already finished",
	errUnknown:        "Reasons unknown",
}

// ErrorMessage is sent to a single client when one of its actions fails.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorMessage(category, kind string) string {
	categoryMessage, ok := errorCategories[category]
	if !ok {
		categoryMessage = errorCategories[errUnspecific]
	}

	typeMessage, ok := errorTypes[kind]
	if !ok {
		typeMessage = errorTypes[errUnknown]
	}

	return fmt.Sprintf("%s. %s.", categoryMessage, typeMessage)
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func errorf(format string, args ...any) {
	log.Printf("%s | ERROR: "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
