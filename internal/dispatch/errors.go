package dispatch

import "errors"

var errEmptyResponse = errors.New("transport returned no response")
