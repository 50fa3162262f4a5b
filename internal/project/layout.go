package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rigdev/apprig/internal/config"
)

const entryTemplate = `import 'package:flutter/material.dart';

void main() {
  runApp(const {{APP}}());
}

class {{APP}} extends StatelessWidget {
  const {{APP}}({super.key});

  @override
  Widget build(BuildContext context) {
    return MaterialApp(
      title: '{{TITLE}}',
      theme: ThemeData(colorSchemeSeed: Colors.blue, useMaterial3: true),
      initialRoute: '/',
      routes: {
        '/': (context) => const HomePage(),
      },
    );
  }
}

class HomePage extends StatelessWidget {
  const HomePage({super.key});

  @override
  Widget build(BuildContext context) {
    return Scaffold(
      appBar: AppBar(title: const Text('{{TITLE}}')),
      body: const Center(child: Text('Hello')),
    );
  }
}
`

const pubspecTemplate = `name: {{PACKAGE}}
description: A Flutter application.
publish_to: 'none'
version: 1.0.0+1

environment:
  sdk: '>=3.0.0 <4.0.0'

dependencies:
  flutter:
    sdk: flutter
  provider: ^6.1.2
  http: ^1.2.1

dev_dependencies:
  flutter_test:
    sdk: flutter
  flutter_lints: ^4.0.0

flutter:
  uses-material-design: true
`

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// PackageName turns a display name into a pub package name.
func PackageName(name string) string {
	s := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "app"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "app_" + s
	}
	return s
}

// EntryTemplate renders the default entry file for an app called name.
func EntryTemplate(name string) string {
	class := "App"
	for _, part := range strings.Split(PackageName(name), "_") {
		if part != "" {
			class += strings.ToUpper(part[:1]) + part[1:]
		}
	}
	title := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `$`, `\$`).Replace(name)
	return strings.NewReplacer("{{APP}}", class, "{{TITLE}}", title).Replace(entryTemplate)
}

// Scaffold creates the conventional directory layout under cfg.Root and
// writes a default entry file and pubspec.yaml when they are missing. It
// returns the relative paths it created.
func Scaffold(cfg config.ProjectConfig, name string) ([]string, error) {
	var created []string
	for _, dir := range []string{cfg.ScreensDir, cfg.StateDir, cfg.ServicesDir, cfg.ModelsDir} {
		if dir == "" {
			continue
		}
		full := filepath.Join(cfg.Root, filepath.FromSlash(dir))
		if _, err := os.Stat(full); err == nil {
			continue
		}
		if err := os.MkdirAll(full, 0755); err != nil {
			return created, fmt.Errorf("create %s: %w", dir, err)
		}
		created = append(created, dir+"/")
	}

	files := []struct {
		rel, content string
	}{
		{cfg.EntryFile, EntryTemplate(name)},
		{"pubspec.yaml", strings.ReplaceAll(pubspecTemplate, "{{PACKAGE}}", PackageName(name))},
	}
	for _, f := range files {
		full := filepath.Join(cfg.Root, filepath.FromSlash(f.rel))
		if _, err := os.Stat(full); err == nil {
			continue
		}
		if err := writeFileAtomic(full, []byte(f.content), 0644); err != nil {
			return created, fmt.Errorf("write %s: %w", f.rel, err)
		}
		created = append(created, f.rel)
	}
	return created, nil
}
