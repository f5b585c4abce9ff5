package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// NowMilli is the clock used for notebook timestamps.
func NowMilli() int64 {
	return time.Now().UnixMilli()
}
