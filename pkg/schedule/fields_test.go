package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDate(t *testing.T) {
	assert.Equal(t, "2024.09.15", ExtractDate("2024.09.15"))
	assert.Equal(t, "2024.09.15", ExtractDate("📅 2024.09.15 (일)"))
	assert.Equal(t, "", ExtractDate("2024-09-15"))
	assert.True(t, IsValidDate("일정 2024.09.15 확정"))
	assert.False(t, IsValidDate("9월 15일"))
}

func TestIsValidTime(t *testing.T) {
	assert.True(t, IsValidTime("14:00"))
	assert.True(t, IsValidTime(" 09:30 "))
	assert.False(t, IsValidTime("9:30"))
	assert.False(t, IsValidTime("1400"))
	assert.False(t, IsValidTime("14:00 예식"))
}

func TestIsValidCouple(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"홍길동 김영희", true},
		{"홍길동", true},
		{"오세준이지선", true},
		{"배승희 윤 정", true},
		{"이 준 이주연", true},
		{"Tom Jane", true},
		{"홍", false},
		{"홍길동 2명", false},
		{"홍길동 김 영희", false},
		{"김 이 박 최", false},
		{"14:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidCouple(tt.line))
		})
	}
}

func TestSeparateCoupleNames(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"배승희 윤 정", "배승희 윤정"},
		{"이 준 이주연", "이준 이주연"},
		{"오세준이지선", "오세준 이지선"},
		{"김철수이영", "김철수 이영"},
		{"김수이영", "김수 이영"},
		{"김철수이영희박", "김철수 이영희박"},
		{"가나다라마바사아", "가나다라마바사아"},
		{"홍길동 김영희", "홍길동 김영희"},
		{"홍길동", "홍길동"},
		{" 홍길동 김영희 ", "홍길동 김영희"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SeparateCoupleNames(tt.in))
		})
	}
}

func TestIsValidPhotographerName(t *testing.T) {
	assert.True(t, IsValidPhotographerName("안현우"))
	assert.True(t, IsValidPhotographerName("남궁민수"))
	assert.False(t, IsValidPhotographerName("남궁민수아"))
	assert.False(t, IsValidPhotographerName("폐백없음"))
	assert.False(t, IsValidPhotographerName("홀스냅"))
	assert.False(t, IsValidPhotographerName("Kim"))
}

func TestPhotographerCandidate(t *testing.T) {
	assert.Equal(t, "안현우", photographerCandidate("안현우(메인) 010-1234-5678"))
	assert.Equal(t, "김민수", photographerCandidate("\u202d김민수\u202c"))
	assert.Equal(t, "원앙 스냅", photographerCandidate("원앙 스냅"))
}

func TestParseContact(t *testing.T) {
	for _, line := range []string{
		"010 1234 5678",
		"010-1234-5678",
		"01012345678",
		"연락처: 010.1234.5678 입니다",
	} {
		t.Run(line, func(t *testing.T) {
			assert.Equal(t, "010-1234-5678", ParseContact(line))
		})
	}

	assert.Empty(t, ParseContact("02-123-4567"))
	assert.Empty(t, ParseContact("홍길동"))
}

func TestCleanLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"그랜드 블랑홀(17층)", "그랜드블랑"},
		{"그랜드블랑홀", "그랜드블랑"},
		{"더블유 단독홀", "센텀"},
		{"라비돌 컨벤션홀 (3층)", "라비돌 컨벤션"},
		{"하우스", "하우스"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLocation(tt.in))
		})
	}
}

func TestParseBrandAlbum(t *testing.T) {
	tests := []struct {
		line      string
		wantBrand string
		wantAlbum string
	}{
		{"K 세븐스", "K 세븐스", "30P"},
		{"K [ 세븐스 ]", "K 세븐스", "30P"},
		{"더그라피 40p", "더그라피", "40P"},
		{"세컨플로우 기본 50P", "세컨플로우", "기본50P"},
		{"B세븐스 기본", "B세븐스", "30P"},
		{"A 세븐스프리미엄 50P", "A 세븐스프리미엄", "50P"},
		{"K 세븐스 추가금 있음", "K 세븐스", ""},
		{"앨범 40P", "", "40P"},
		{"안녕하세요", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			brand, album := ParseBrandAlbum(tt.line)
			assert.Equal(t, tt.wantBrand, brand)
			assert.Equal(t, tt.wantAlbum, album)
		})
	}
}

func TestParseBrandAlbum_DefaultAlbumOverride(t *testing.T) {
	brand, album := parseBrandAlbum("더그라피", "40P")
	assert.Equal(t, "더그라피", brand)
	assert.Equal(t, "40P", album)
}
