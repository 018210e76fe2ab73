package ratelimit

// Bucket names one family of counters, such as shorten requests per IP.
type Bucket string

const (
	// BucketShortenURL limits how often the same target URL is shortened.
	BucketShortenURL Bucket = "shorten-url"
	// BucketShortenIP limits shorten requests per client IP.
	BucketShortenIP Bucket = "shorten-ip"
	// BucketRedirectAlias limits redirects per alias (hotlink protection).
	BucketRedirectAlias Bucket = "redirect-alias"
	// BucketRedirectIP limits redirects per client IP.
	BucketRedirectIP Bucket = "redirect-ip"
	// BucketNotFoundIP limits lookups of unknown aliases per client IP.
	BucketNotFoundIP Bucket = "not-found-ip"
)

// Buckets lists every bucket in a stable order.
func Buckets() []Bucket {
	return []Bucket{
		BucketShortenURL,
		BucketShortenIP,
		BucketRedirectAlias,
		BucketRedirectIP,
		BucketNotFoundIP,
	}
}

// Prefix returns the counter key prefix of the bucket.
func (b Bucket) Prefix() string {
	switch b {
	case BucketShortenURL:
		return "rl:shorten:url:"
	case BucketShortenIP:
		return "rl:shorten:ip:"
	case BucketRedirectAlias:
		return "rl:redirect:alias:"
	case BucketRedirectIP:
		return "rl:redirect:ip:"
	case BucketNotFoundIP:
		return "rl:404:ip:"
	default:
		return "rl:" + string(b) + ":"
	}
}
