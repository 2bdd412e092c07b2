package explore

import "time"

// fetchResult はHTTPステータスコードに基づく取得結果の分類。
type fetchResult int

const (
	fetchResultOK fetchResult = iota
	fetchResultNotModified
	// fetchResultStop はURLの設定ミスとみなし、再起動まで取得を止める（404/410/401/403）。
	fetchResultStop
	// fetchResultBackoff は一時的な障害とみなし、間隔を空けて再取得する（429/5xx）。
	fetchResultBackoff
	fetchResultUnknown
)

const maxBackoff = 12 * time.Hour

func classifyHTTPStatus(statusCode int) fetchResult {
	switch {
	case statusCode == 200:
		return fetchResultOK
	case statusCode == 304:
		return fetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return fetchResultStop
	case statusCode == 401 || statusCode == 403:
		return fetchResultStop
	case statusCode == 429:
		return fetchResultBackoff
	case statusCode >= 500:
		return fetchResultBackoff
	default:
		return fetchResultUnknown
	}
}

// calculateBackoff は連続エラー回数に応じた待ち時間を返す。
// base（取り込み間隔）から2倍ずつ増やし、maxBackoffで打ち止める。
func calculateBackoff(base time.Duration, consecutiveErrors int) time.Duration {
	delay := base
	for i := 1; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// feedState は1フィード分の取り込み状態。
// 取得に失敗しても前回の記事は保持し続ける。
type feedState struct {
	items             []itemWithDate
	etag              string
	lastModified      string
	consecutiveErrors int
	nextAttempt       time.Time
	stopped           bool
	lastError         string
}

func (s *feedState) applySuccess() {
	s.consecutiveErrors = 0
	s.lastError = ""
	s.nextAttempt = time.Time{}
}

func (s *feedState) applyBackoff(now time.Time, base time.Duration, reason string) {
	s.consecutiveErrors++
	s.lastError = reason
	s.nextAttempt = now.Add(calculateBackoff(base, s.consecutiveErrors))
}

func (s *feedState) applyStop(reason string) {
	s.stopped = true
	s.lastError = reason
}

// due は今回のサイクルで取得すべきかどうかを返す。
func (s *feedState) due(now time.Time) bool {
	return !s.stopped && !now.Before(s.nextAttempt)
}
