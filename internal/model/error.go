package model

import "errors"

var ErrorNotFound = errors.New("not found")
var ErrorUnknownTable = errors.New("unknown table")
var ErrorInvalidChannel = errors.New("invalid channel key")
var ErrorEmptyContent = errors.New("content is empty")
var ErrorContentTooLong = errors.New("content is too long")
var ErrorUnknownNotificationType = errors.New("unknown notification type")
var ErrorForbidden = errors.New("forbidden")
