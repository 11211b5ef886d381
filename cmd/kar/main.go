// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/devblok/cubes/core/workers"
	"github.com/devblok/cubes/utility/kar"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var currentUserName = "unknown"

func init() {
	if u, err := user.Current(); err == nil && u.Username != "" {
		currentUserName = u.Username
	}
}

var (
	author   = flag.String("author", "", "Set the author of the package when compressing, current user by default")
	version  = flag.Int64("version", 1, "Archive version number to create it with")
	extract  = flag.String("e", "", "Extract the archive given")
	compress = flag.String("c", "", "Compress the given file/folder")
	dstFile  = flag.String("f", "out.kar", "Destination file when compressing")
	dstDir   = flag.String("o", ".", "Destination directory when extracting")
	jobs     = flag.Int("j", runtime.NumCPU(), "Files compressed in parallel")
	silent   = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	switch {
	case *extract != "" && *compress != "":
		log.Fatal("only one operation at a time")
	case *extract != "":
		if err := extractFiles(*extract, *dstDir); err != nil {
			log.WithError(err).Fatal("extract")
		}
	case *compress != "":
		if err := compressFiles(*compress, *dstFile); err != nil {
			log.WithError(err).Fatal("compress")
		}
	default:
		flag.PrintDefaults()
	}
}

func compressFiles(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.Errorf("%s exists, will not overwrite", dst)
	}

	var filesToCompress []string
	if err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			filesToCompress = append(filesToCompress, path)
		}
		return nil
	}); err != nil {
		return err
	}

	name := *author
	if name == "" {
		name = currentUserName
	}
	builder, err := kar.NewBuilder(kar.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	pool, err := workers.New(*jobs, log.StandardLogger())
	if err != nil {
		return err
	}
	defer pool.Close()

	// files are compressed a pool sized batch at a time
	for start := 0; start < len(filesToCompress); start += pool.Size() {
		end := start + pool.Size()
		if end > len(filesToCompress) {
			end = len(filesToCompress)
		}
		batch := make([]*workers.Work, 0, end-start)
		for _, path := range filesToCompress[start:end] {
			w := workers.NewWork(addFile(builder, src, path))
			if err := pool.Submit(w); err != nil {
				return err
			}
			batch = append(batch, w)
		}
		for _, w := range batch {
			if err := pool.Join(w); err != nil {
				return err
			}
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	written, err := builder.WriteTo(out)
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"files":   builder.Len(),
		"bytes":   written,
		"archive": dst,
	}).Info("archive written")
	return nil
}

// addFile stores the file under its slash separated path relative to root
func addFile(builder *kar.Builder, root, path string) func() error {
	return func() error {
		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if name == "." {
			name = filepath.Base(path)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := builder.Add(filepath.ToSlash(name), f); err != nil {
			return err
		}
		log.WithField("file", name).Debug("compressed")
		return nil
	}
}

func extractFiles(archive, dir string) error {
	ar, err := kar.OpenFile(archive)
	if err != nil {
		return err
	}
	defer ar.Close()

	for _, name := range ar.Names() {
		data, err := ar.ReadAll(name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if rel, err := filepath.Rel(dir, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return errors.Errorf("%s escapes %s", name, dir)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
		log.WithField("file", target).Debug("extracted")
	}

	header := ar.Header()
	log.WithFields(log.Fields{
		"files":   len(header.Index),
		"author":  header.Author,
		"version": header.Version,
	}).Info("archive extracted")
	return nil
}
