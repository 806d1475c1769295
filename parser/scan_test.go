package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<table><tr><td>
	<div id="r1">
		<div>2 of 3 people found the following review helpful</div>
		<span>4.0 out of 5 stars</span>
		<div class="reviewText">First</div>
	</div>
	<div id="r2">
		<span>1.0 out of 5 stars</span>
		<div class="reviewText">Second</div>
	</div>
	<div id="r3">
		<span>3.5 out of 5 stars</span>
		<div class="reviewText">Third</div>
	</div>
</td></tr></table>
<div class="CMpaginate">
	<span class="paging">
		<a href="/product-reviews/1?pageNumber=1">&lsaquo; Previous</a> |
		<a href="/product-reviews/1?pageNumber=1">1</a>
		<span>2</span>
		<a href="/product-reviews/1?pageNumber=3">3</a> |
		<a href="/product-reviews/1?pageNumber=3">Next &rsaquo;</a>
	</span>
</div>
</body></html>`

func TestFindItems(t *testing.T) {
	doc, err := ParsePage([]byte(listingPage))
	require.NoError(t, err)

	items := FindItems(doc)
	require.Len(t, items, 3)

	var ids []string
	for _, item := range items {
		id, _ := item.Attr("id")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
}

func TestFindItemsSharedContainer(t *testing.T) {
	doc, err := ParsePage([]byte(`<div id="c"><div class="reviewText">a</div><div class="reviewText">b</div></div>`))
	require.NoError(t, err)

	items := FindItems(doc)
	require.Len(t, items, 2)
	for _, item := range items {
		id, _ := item.Attr("id")
		assert.Equal(t, "c", id)
	}
}

func TestFindItemsEmptyPage(t *testing.T) {
	doc, err := ParsePage([]byte(`<html><body><p>No reviews yet.</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, FindItems(doc))
}

func TestFindNextLink(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
		ok       bool
	}{
		{
			name:     "next anchor present",
			html:     listingPage,
			expected: "/product-reviews/1?pageNumber=3",
			ok:       true,
		},
		{
			name:     "case insensitive",
			html:     `<span class="paging"><a href="p0">PREV</a><a href="p2">NEXT PAGE</a></span>`,
			expected: "p2",
			ok:       true,
		},
		{
			name: "last page",
			html: `<span class="paging"><a href="p1">&lsaquo; Previous</a> | <a href="p1">1</a> <span>2</span></span>`,
			ok:   false,
		},
		{
			name: "no paging control",
			html: `<div><a href="p2">Next</a></div>`,
			ok:   false,
		},
		{
			name: "next anchor without href",
			html: `<span class="paging"><a>Next</a></span>`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParsePage([]byte(tt.html))
			require.NoError(t, err)

			got, ok := FindNextLink(doc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
