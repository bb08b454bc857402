package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NotARoomba/canvas/internal/platform/apierr"
)

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apierr.InvalidID(errors.New("invalid " + name))
	}
	return id, nil
}

// positiveInt parses raw as an integer greater than zero.
func positiveInt(raw, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apierr.InvalidNumber(errors.New(name + " must be a number"))
	}
	if n <= 0 {
		return 0, apierr.InvalidNumber(errors.New(name + " must be greater than zero"))
	}
	return n, nil
}
