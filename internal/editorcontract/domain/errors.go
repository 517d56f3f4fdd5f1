package domain

import "errors"

var ErrInvalidNovel = errors.New("invalid_novel")
