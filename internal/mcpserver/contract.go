package mcpserver

const recordFormatURI = "ansuz://record-format"

// RecordFormat describes diary records and their locators for assistants
// calling the tools.
const RecordFormat = `# Ansuz Record Format

Every diary entry is an audio record:

` + "```" + `json
{
  "id": 7,                                  // assigned by the diary, never reused
  "title": "Morning walk",                  // non-empty, at most 200 characters
  "file_path": "file:///home/me/.ansuz/audio/audio_1712736000000.m4a",
  "timestamp": 1712736000000,               // creation time, ms since epoch, never changes
  "duration": 65000                         // ms, 0 when it could not be read
}
` + "```" + `

## Locators

` + "`" + `file_path` + "`" + ` is one of:

1. ` + "`" + `file:///abs/path` + "`" + `: audio the diary recorded or downloaded itself.
   Deleting the record deletes the file.
2. ` + "`" + `/abs/path` + "`" + `: an external file added with ` + "`" + `import_audio` + "`" + `.
   The diary never moves or deletes it.
3. ` + "`" + `https://host/clip.mp3` + "`" + `: a remote clip added with ` + "`" + `import_audio` + "`" + `.

## Rules

- Relative paths are rejected. Use absolute paths.
- Importing the same location twice returns the existing record.
- Supported extensions: m4a, mp3, wav, ogg, aac, flac, opus.
- Titles may be renamed with ` + "`" + `rename_record` + "`" + `; the timestamp is kept.
- The timeline groups records by the calendar day of their timestamp, newest
  day first, newest record first within a day.
`
