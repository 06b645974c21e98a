package filter

import (
	"reflect"
	"testing"
)

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		keywords []string
		want     bool
	}{
		{
			name:     "case insensitive substring",
			tags:     []string{"#CatNews"},
			keywords: []string{"cat"},
			want:     true,
		},
		{
			name:     "upper case keyword",
			tags:     []string{"#catnews"},
			keywords: []string{"CAT"},
			want:     true,
		},
		{
			name:     "empty keyword list never skips",
			tags:     []string{"#新闻", "#娱乐"},
			keywords: nil,
			want:     false,
		},
		{
			name:     "no tags",
			tags:     nil,
			keywords: []string{"娱乐"},
			want:     false,
		},
		{
			name:     "cjk keyword in tag",
			tags:     []string{"#体育", "#娱乐新闻"},
			keywords: []string{"娱乐"},
			want:     true,
		},
		{
			name:     "no match",
			tags:     []string{"#新闻"},
			keywords: []string{"娱乐"},
			want:     false,
		},
		{
			name:     "full width tag is a different string",
			tags:     []string{"#ＣＡＴ"},
			keywords: []string{"cat"},
			want:     false,
		},
		{
			name:     "blank keywords ignored",
			tags:     []string{"#新闻"},
			keywords: []string{"", "  "},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSkip(tt.tags, tt.keywords); got != tt.want {
				t.Errorf("ShouldSkip(%v, %v) = %v, want %v", tt.tags, tt.keywords, got, tt.want)
			}
		})
	}
}

func TestFindMatch_TagsOuterKeywordsInner(t *testing.T) {
	tags := []string{"#政治", "#经济"}
	keywords := []string{"经济", "政治"}

	m, ok := FindMatch(tags, keywords)
	if !ok {
		t.Fatal("FindMatch() found nothing")
	}
	want := Match{Tag: "#政治", Keyword: "政治"}
	if m != want {
		t.Errorf("FindMatch() = %+v, want %+v", m, want)
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{"  Cat ", "", "娱乐", "  "})
	want := []string{"cat", "娱乐"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeKeywords() = %v, want %v", got, want)
	}
}
