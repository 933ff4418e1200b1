/*
Package repoget is a mirror-aware client for repository metadata and
package downloads (APT/yum-style repositories: a signed manifest that
enumerates content files by name, checksum, and size).

repoget provides:
  - Mirror resolution from base URLs, mirror-list files, and metalinks
  - A parallel multi-target downloader with per-mirror concurrency caps,
    failover, and checksum verification; the single-transfer engine
    supports range resume, but the downloader starts every attempt
    from an empty temporary file
  - Fastest-mirror probing with an on-disk cache
  - End-to-end repository synchronization: mirrors -> manifest -> files

The main packages are:

	github.com/mirrorctl/repoget/internal/repo    - repository data model and format parsers
	github.com/mirrorctl/repoget/internal/mirror  - mirror resolution and the download engine
	github.com/mirrorctl/repoget/cmd/repoget       - command-line interface
*/
package repoget
