package entity

// Result is the outcome of extracting one page: exactly one of Article or Failure is set.
type Result struct {
	Article *ArticleRecord
	Failure *FailureRecord
}

// Succeeded wraps a successfully extracted article.
func Succeeded(a *ArticleRecord) Result {
	return Result{Article: a}
}

// Failed builds a failure result carrying the diagnostic trace of err.
func Failed(url string, err error) Result {
	return Result{Failure: &FailureRecord{URL: url, Error: err.Error()}}
}

// OK reports whether the result holds an article.
func (r Result) OK() bool {
	return r.Article != nil
}

// URL returns the page URL regardless of outcome.
func (r Result) URL() string {
	if r.Article != nil {
		return r.Article.URL
	}
	if r.Failure != nil {
		return r.Failure.URL
	}
	return ""
}
