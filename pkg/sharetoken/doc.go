/*
Package sharetoken encodes and decodes the textual, URL-like capability
string a repository is shared through: an access mode, the AccessSecrets
that grant it, and a human-suggested repository name, in one string safe to
paste into a chat message or QR code.
*/
package sharetoken
