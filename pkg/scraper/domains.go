package scraper

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SubdomainColumn is the CSV header holding the host to scrape.
const SubdomainColumn = "Subdomain"

// ReadDomains collects subdomains from every *.csv file in dir. Unreadable
// files are logged and skipped; blank cells are ignored.
func ReadDomains(dir string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list domain files: %w", err)
	}
	sort.Strings(files)

	var subdomains []string
	for _, file := range files {
		found, err := readDomainFile(file)
		if err != nil {
			logger.Error("failed to read domain file", zap.String("file", file), zap.Error(err))
			continue
		}
		logger.Info("read domain file", zap.String("file", file), zap.Int("subdomains", len(found)))
		subdomains = append(subdomains, found...)
	}

	return subdomains, nil
}

func readDomainFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	column := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == SubdomainColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("missing %q column", SubdomainColumn)
	}

	var subdomains []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if column >= len(record) {
			continue
		}
		if subdomain := strings.TrimSpace(record[column]); subdomain != "" {
			subdomains = append(subdomains, subdomain)
		}
	}

	return subdomains, nil
}
