package extract

import "testing"

func TestLinks_ResolvesAndClassifies(t *testing.T) {
	html := `
	<html><body>
		<p>See <a href="https://example.com/page1">the source</a>.</p>
		<p>Also <a href="/wiki/Other">internal</a> and <a href="#top">anchor</a>.</p>
		<p><a href="mailto:a@b.c">mail</a> <a href="javascript:void(0)">js</a></p>
		<p><a class="external text" href="https://news.example.org/story">story</a></p>
		<p><a href="https://example.com/page1#section">dup</a></p>
	</body></html>
	`

	links, err := Links(html, "https://en.wikipedia.org/wiki/Article")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(links) != 3 {
		t.Fatalf("Expected 3 links, got %d: %+v", len(links), links)
	}

	if links[0].URL != "https://example.com/page1" || links[0].Text != "the source" {
		t.Errorf("Unexpected first link: %+v", links[0])
	}
	if links[1].URL != "https://en.wikipedia.org/wiki/Other" || !links[1].SameHost {
		t.Errorf("Expected resolved same-host link, got %+v", links[1])
	}
	if links[2].Kind != LinkCitation {
		t.Errorf("Expected citation kind, got %s", links[2].Kind)
	}

	external := ExternalLinks(links)
	if len(external) != 2 {
		t.Errorf("Expected 2 external links, got %d", len(external))
	}
}

func TestLinks_InvalidBase(t *testing.T) {
	if _, err := Links("<a href='x'>x</a>", "://bad"); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}
