/*
Package missingparts deduplicates outstanding fetch requests for parts (in
practice, blocks) across peer sessions, so that two offers of the same part
never result in two concurrent fetches, while still letting some other
offering peer pick up the part if whoever accepted it disconnects mid
transfer.

The tracker itself holds no knowledge of what a part's content is or how to
fetch it; it only tracks which clients have it, who currently holds the
promise to fetch it, and whether it is wanted and cleared by quota.
*/
package missingparts
