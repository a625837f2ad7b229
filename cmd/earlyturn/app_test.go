package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tcxtools/earlyturn/internal/tcx"
)

const course = `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2">
  <Courses>
    <Course>
      <Name>Loop</Name>
      <Track>
        <Trackpoint>
          <Time>2022-03-29T10:00:00Z</Time>
          <Position>
            <LatitudeDegrees>45.1000</LatitudeDegrees>
            <LongitudeDegrees>-122.6000</LongitudeDegrees>
          </Position>
        </Trackpoint>
        <Trackpoint>
          <Time>2022-03-29T10:01:00Z</Time>
          <Position>
            <LatitudeDegrees>45.1005</LatitudeDegrees>
            <LongitudeDegrees>-122.6000</LongitudeDegrees>
          </Position>
        </Trackpoint>
        <Trackpoint>
          <Time>2022-03-29T10:02:00Z</Time>
          <Position>
            <LatitudeDegrees>45.1010</LatitudeDegrees>
            <LongitudeDegrees>-122.6000</LongitudeDegrees>
          </Position>
        </Trackpoint>
        <Trackpoint>
          <Time>2022-03-29T10:03:00Z</Time>
          <Position>
            <LatitudeDegrees>45.1015</LatitudeDegrees>
            <LongitudeDegrees>-122.6000</LongitudeDegrees>
          </Position>
        </Trackpoint>
      </Track>
      <CoursePoint>
        <Name>Start</Name>
        <Time>2022-03-29T10:00:00Z</Time>
        <Position>
          <LatitudeDegrees>45.1000</LatitudeDegrees>
          <LongitudeDegrees>-122.6000</LongitudeDegrees>
        </Position>
        <PointType>Generic</PointType>
        <Notes>Go</Notes>
      </CoursePoint>
      <CoursePoint>
        <Name>Right</Name>
        <Time>2022-03-29T10:03:00Z</Time>
        <Position>
          <LatitudeDegrees>45.1015</LatitudeDegrees>
          <LongitudeDegrees>-122.6000</LongitudeDegrees>
        </Position>
        <PointType>Right</PointType>
        <Notes>Main St</Notes>
      </CoursePoint>
      <CoursePoint>
        <Name>Lost</Name>
        <Time>2022-03-29T11:00:00Z</Time>
        <Position>
          <LatitudeDegrees>1</LatitudeDegrees>
          <LongitudeDegrees>1</LongitudeDegrees>
        </Position>
        <PointType>Generic</PointType>
        <Notes></Notes>
      </CoursePoint>
    </Course>
  </Courses>
</TrainingCenterDatabase>
`

// workspace returns a temp dir holding loop.tcx and, when cfg is not empty,
// a config file.
func workspace(t *testing.T, cfg string) (dir, input string) {
	t.Helper()
	t.Cleanup(viper.Reset)

	dir = t.TempDir()
	input = filepath.Join(dir, "loop.tcx")
	require.NoError(t, os.WriteFile(input, []byte(course), 0644))
	if cfg != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "earlyturn.cfg.json"), []byte(cfg), 0644))
	}
	return dir, input
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	err := app.Run(append([]string{"earlyturn"}, args...))
	return stdout.String(), err
}

func coursePointNames(t *testing.T, path string) []string {
	t.Helper()
	doc, err := tcx.ReadFile(path)
	require.NoError(t, err)
	var names []string
	for _, cp := range doc.Course().Find("CoursePoint") {
		names = append(names, cp.Child("Name").Text())
	}
	return names
}

func TestTransform_WritesOutputNextToInput(t *testing.T) {
	dir, input := workspace(t, "")

	out, err := run(t, "--config-dir", dir, input)
	require.NoError(t, err)

	output := filepath.Join(dir, "loopNew.tcx")
	assert.Contains(t, out, "Output file is: "+output)
	assert.Equal(t, []string{"Start", "Right", "Right", "Lost"}, coursePointNames(t, output))

	orig, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, course, string(orig), "input is never modified")
}

func TestTransform_EarlyNoticeUsesLookbackTrackpoint(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, input)
	require.NoError(t, err)

	doc, err := tcx.ReadFile(filepath.Join(dir, "loopNew.tcx"))
	require.NoError(t, err)
	early := doc.Course().Find("CoursePoint")[1]
	assert.Equal(t, "2022-03-29T10:01:00Z", early.Child("Time").Text())
	assert.Equal(t, "45.1005", early.ChildPath("Position", "LatitudeDegrees").Text())
	assert.Equal(t, "Main St", early.Child("Notes").Text())
}

func TestTransform_FlagsOverrideConfig(t *testing.T) {
	dir, input := workspace(t, `{"lookbackDistance": 3, "output": {"suffix": "_cfg"}}`)

	_, err := run(t, "--config-dir", dir, "--lookback", "1", "--suffix", "_early", input)
	require.NoError(t, err)

	output := filepath.Join(dir, "loop_early.tcx")
	doc, err := tcx.ReadFile(output)
	require.NoError(t, err)
	early := doc.Course().Find("CoursePoint")[1]
	assert.Equal(t, "2022-03-29T10:02:00Z", early.Child("Time").Text(), "lookback 1 from the flag")

	_, err = os.Stat(filepath.Join(dir, "loop_cfg.tcx"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransform_ConfigLookback(t *testing.T) {
	dir, input := workspace(t, `{"lookbackDistance": 3}`)

	_, err := run(t, "--config-dir", dir, input)
	require.NoError(t, err)

	doc, err := tcx.ReadFile(filepath.Join(dir, "loopNew.tcx"))
	require.NoError(t, err)
	early := doc.Course().Find("CoursePoint")[1]
	assert.Equal(t, "2022-03-29T10:00:00Z", early.Child("Time").Text())
}

func TestTransform_OutputFlag(t *testing.T) {
	dir, input := workspace(t, "")
	output := filepath.Join(dir, "custom.tcx")

	_, err := run(t, "--config-dir", dir, "-o", output, input)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestTransform_OutputFlagWithManyInputs(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "-o", filepath.Join(dir, "x.tcx"), input, input+"2")
	assert.ErrorIs(t, err, errOutputMany)
}

func TestTransform_RefusesToOverwriteInput(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "-o", input, input)
	assert.EqualError(t, err, "1 of 1 files failed")

	orig, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, course, string(orig))
}

func TestTransform_IndentFlag(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "--indent", "\t", input)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "loopNew.tcx"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n\t<Courses>")
}

func TestTransform_DryRunWritesNothing(t *testing.T) {
	dir, input := workspace(t, "")

	out, err := run(t, "--config-dir", dir, "--dry-run", input)
	require.NoError(t, err)

	assert.Contains(t, out, "insert")
	assert.Contains(t, out, "lookback_out_of_range")
	assert.Contains(t, out, "no_match")
	_, err = os.Stat(filepath.Join(dir, "loopNew.tcx"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransform_MalformedInputFailsWithoutOutput(t *testing.T) {
	dir, input := workspace(t, "")
	bad := strings.Replace(course, "<Time>2022-03-29T10:02:00Z</Time>", "", 1)
	require.NoError(t, os.WriteFile(input, []byte(bad), 0644))

	_, err := run(t, "--config-dir", dir, input)
	assert.EqualError(t, err, "1 of 1 files failed")

	_, err = os.Stat(filepath.Join(dir, "loopNew.tcx"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransform_ContinuesAfterFailure(t *testing.T) {
	dir, input := workspace(t, "")
	missing := filepath.Join(dir, "missing.tcx")

	_, err := run(t, "--config-dir", dir, missing, input)
	assert.EqualError(t, err, "1 of 2 files failed")
	assert.FileExists(t, filepath.Join(dir, "loopNew.tcx"))
}

func TestTransform_GlobSkipsEarlierOutput(t *testing.T) {
	dir, _ := workspace(t, "")
	pattern := filepath.Join(dir, "*.tcx")

	_, err := run(t, "--config-dir", dir, pattern)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "loopNew.tcx"))

	out, err := run(t, "--config-dir", dir, pattern)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "Output file is:"))
	assert.NoFileExists(t, filepath.Join(dir, "loopNewNew.tcx"))
}

func TestTransform_NoInput(t *testing.T) {
	t.Cleanup(viper.Reset)
	_, err := run(t)
	assert.ErrorIs(t, err, errNoInput)
}

func TestTransform_InvalidConfig(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "--lookback", "-1", input)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestTransform_Filter(t *testing.T) {
	dir, input := workspace(t, `{"lookbackDistance": 0}`)

	_, err := run(t, "--config-dir", dir, "--filter", `pointType == "Generic"`, input)
	require.NoError(t, err)

	assert.Equal(t, []string{"Start", "Start", "Right", "Lost"}, coursePointNames(t, filepath.Join(dir, "loopNew.tcx")))
}

func TestTransform_InvalidFilter(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "--filter", "pointType ==", input)
	assert.EqualError(t, err, "1 of 1 files failed")
}

func TestTransform_LogFile(t *testing.T) {
	dir, input := workspace(t, "")
	logsDir := filepath.Join(dir, "logs")

	_, err := run(t, "--config-dir", dir, "--logs-dir", logsDir, input)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(logsDir, AppName+"."+SessionStart.Format("20060102_150405")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Early notices inserted")
}

func TestPlanCommand_JSON(t *testing.T) {
	dir, input := workspace(t, "")

	out, err := run(t, "--config-dir", dir, "plan", "--format", "json", input)
	require.NoError(t, err)

	var rows []decisionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)

	assert.Equal(t, "skip", rows[0].Action)
	assert.Equal(t, "lookback_out_of_range", rows[0].Reason)
	assert.Equal(t, 0, rows[0].MatchedIndex)

	assert.Equal(t, "insert", rows[1].Action)
	assert.Equal(t, 3, rows[1].MatchedIndex)
	assert.Equal(t, 1, rows[1].LookbackIndex)
	assert.Equal(t, "111.3", rows[1].LeadMeters)

	assert.Equal(t, "no_match", rows[2].Reason)
	assert.Equal(t, -1, rows[2].MatchedIndex)

	_, err = os.Stat(filepath.Join(dir, "loopNew.tcx"))
	assert.True(t, os.IsNotExist(err), "plan never writes")
}

func TestPlanCommand_YAML(t *testing.T) {
	dir, input := workspace(t, "")

	out, err := run(t, "--config-dir", dir, "plan", "-f", "yaml", input)
	require.NoError(t, err)

	var rows []decisionRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "Right", rows[1].Marker)
}

func TestPlanCommand_CSV(t *testing.T) {
	dir, input := workspace(t, "")

	out, err := run(t, "--config-dir", dir, "plan", "--format", "csv", input)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "file,marker,point_type,time,matched_index,lookback_index,action,reason,lead_m\n"))

	var rows []decisionRow
	require.NoError(t, gocsv.UnmarshalString(out, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, input, rows[0].File)
}

func TestPlanCommand_UnknownFormat(t *testing.T) {
	dir, input := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "plan", "--format", "xml", input)
	assert.ErrorContains(t, err, `unknown format "xml"`)
}

func TestHistoryCommand(t *testing.T) {
	dir, input := workspace(t, "")
	dbPath := filepath.Join(dir, "history.db")
	cfg := `{"history": {"enabled": true, "type": "sqlite", "sqlitePath": "` + filepath.ToSlash(dbPath) + `"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "earlyturn.cfg.json"), []byte(cfg), 0644))

	_, err := run(t, "--config-dir", dir, input)
	require.NoError(t, err)
	viper.Reset()
	_, err = run(t, "--config-dir", dir, "--dry-run", input)
	require.NoError(t, err)
	viper.Reset()

	out, err := run(t, "--config-dir", dir, "history", "--format", "json")
	require.NoError(t, err)

	var rows []runRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].DryRun, "newest first")
	assert.False(t, rows[1].DryRun)
	for _, r := range rows {
		assert.Equal(t, 3, r.Markers)
		assert.Equal(t, 1, r.Inserted)
		assert.Equal(t, 1, r.NoMatch)
		assert.Equal(t, 1, r.OutOfRange)
	}
}

func TestHistoryCommand_Disabled(t *testing.T) {
	dir, _ := workspace(t, "")

	_, err := run(t, "--config-dir", dir, "history")
	assert.ErrorIs(t, err, errHistoryDisabled)
}

func TestWriteRows_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRows[runRow](&buf, formatText, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "ID"))
}

func TestWriteRows_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRows[decisionRow](&buf, formatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}
