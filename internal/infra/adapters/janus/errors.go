package janus

import (
	"errors"
	"fmt"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

var (
	// ErrAlreadyExists - комната с таким id уже есть на ноде
	ErrAlreadyExists = errors.New("janus room already exists")
	// ErrRoomAlreadyDeleted - комнаты с таким id на ноде нет
	ErrRoomAlreadyDeleted = errors.New("janus room already deleted")
)

// Error - любой другой отказ control API, фатальный для операции.
type Error struct {
	Code   int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("janus error %d: %s", e.Code, e.Reason)
}

type pluginCodes struct {
	exists   int
	noSuchID int
}

var codesByPlugin = map[models.Plugin]pluginCodes{
	models.PluginAudioBridge: {exists: 486, noSuchID: 485},
	models.PluginVideoRoom:   {exists: 427, noSuchID: 426},
	models.PluginTextRoom:    {exists: 418, noSuchID: 417},
}

// pluginError приводит код ошибки плагина к сигналу.
func pluginError(plugin models.Plugin, code int, reason string) error {
	codes, ok := codesByPlugin[plugin]
	if ok {
		switch code {
		case codes.exists:
			return ErrAlreadyExists
		case codes.noSuchID:
			return ErrRoomAlreadyDeleted
		}
	}

	return &Error{Code: code, Reason: reason}
}
