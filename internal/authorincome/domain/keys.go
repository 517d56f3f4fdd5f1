package domain

import "strconv"

func NovelKey(novelID int64) string {
	return strconv.FormatInt(novelID, 10)
}
