package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systemshift/coursefs/internal/dag"
)

func (a *app) printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCreateCourseCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create-course <title>",
		Short: "Create a course with an empty master branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.repo.CreateCourse(a.ctx(cmd), args[0], description)
			if err != nil {
				return err
			}
			return a.printJSON(cmd, c)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "course description")
	return cmd
}

type courseSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Branches    []string `json:"branches"`
	Nodes       int      `json:"nodes"`
	Version     uint64   `json:"version"`
}

func summarize(c *dag.Course) courseSummary {
	return courseSummary{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Branches:    c.BranchNames(),
		Nodes:       len(c.Nodes),
		Version:     c.Version,
	}
}

func newCoursesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List stored courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			courses, err := a.repo.Courses(a.ctx(cmd))
			if err != nil {
				return err
			}
			out := make([]courseSummary, len(courses))
			for i, c := range courses {
				out[i] = summarize(c)
			}
			return a.printJSON(cmd, out)
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "show <course>",
		Short: "Show a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.repo.GetCourse(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			if full {
				return a.printJSON(cmd, c)
			}
			return a.printJSON(cmd, summarize(c))
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the whole course document")
	return cmd
}

type branchFlags struct {
	parent string
	orphan bool
}

func (f *branchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.parent, "parent", dag.DefaultBranch, "branch to start from")
	cmd.Flags().BoolVar(&f.orphan, "orphan", false, "start from a fresh empty tree instead of a parent")
}

func (f *branchFlags) resolve() string {
	if f.orphan {
		return ""
	}
	return f.parent
}

func newAddBranchCmd(a *app) *cobra.Command {
	var flags branchFlags
	cmd := &cobra.Command{
		Use:   "add-branch <course> <name>",
		Short: "Create a branch and print the updated course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.repo.AddBranch(a.ctx(cmd), args[0], args[1], flags.resolve())
			if err != nil {
				return err
			}
			return a.printJSON(cmd, summarize(c))
		},
	}
	flags.register(cmd)
	return cmd
}

func newCreateBranchCmd(a *app) *cobra.Command {
	var flags branchFlags
	cmd := &cobra.Command{
		Use:   "create-branch <course> <name>",
		Short: "Create a branch and print its root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.repo.CreateBranch(a.ctx(cmd), args[0], args[1], flags.resolve())
			if err != nil {
				return err
			}
			return a.printJSON(cmd, view)
		},
	}
	flags.register(cmd)
	return cmd
}

type nodeFlags struct {
	file     string
	title    string
	nodeType string
	blobType string
	url      string
}

// content reads node content from --file (YAML or JSON) or from the
// individual flags.
func (f *nodeFlags) content() (dag.NodeContent, error) {
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return dag.NodeContent{}, errors.Wrap(err, "read node file")
		}
		var nc dag.NodeContent
		if err := yaml.Unmarshal(data, &nc); err != nil {
			return dag.NodeContent{}, errors.Wrapf(err, "parse %s", f.file)
		}
		return nc, nil
	}
	if f.title == "" {
		return dag.NodeContent{}, errors.New("--title or --file is required")
	}
	return dag.NodeContent{
		Title:    f.title,
		Type:     dag.NodeType(strings.ToLower(f.nodeType)),
		BlobType: dag.BlobType(strings.ToUpper(f.blobType)),
		URL:      f.url,
	}, nil
}

func newAddNodeCmd(a *app, returnNode bool) *cobra.Command {
	var (
		flags  nodeFlags
		branch string
		path   []string
	)
	use, short := "add-node <course>", "Insert a node and print the updated course"
	if returnNode {
		use, short = "create-node <course>", "Insert a node and print it"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: "Inserts a node under the last checksum of --path. The path starts at the\n" +
			"branch's current root; without --path the node goes directly under the root.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			content, err := flags.content()
			if err != nil {
				return err
			}
			if len(path) == 0 {
				c, err := a.repo.GetCourse(ctx, args[0])
				if err != nil {
					return err
				}
				root, err := c.BranchRoot(branch)
				if err != nil {
					return err
				}
				path = []string{root.Checksum}
			}
			if returnNode {
				n, err := a.repo.CreateNode(ctx, args[0], branch, content, path)
				if err != nil {
					return err
				}
				return a.printJSON(cmd, n)
			}
			c, err := a.repo.AddNode(ctx, args[0], branch, content, path)
			if err != nil {
				return err
			}
			root, err := c.BranchRoot(branch)
			if err != nil {
				return err
			}
			return a.printJSON(cmd, struct {
				courseSummary
				Root dag.Node `json:"root"`
			}{summarize(c), root})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&branch, "branch", "b", dag.DefaultBranch, "branch to commit to")
	f.StringSliceVarP(&path, "path", "p", nil, "checksums from the branch root to the parent")
	f.StringVar(&flags.file, "file", "", "YAML or JSON file holding the node content")
	f.StringVar(&flags.title, "title", "", "node title")
	f.StringVar(&flags.nodeType, "type", string(dag.TreeNode), "tree or blob")
	f.StringVar(&flags.blobType, "blob-type", "", "VIDEO, MARKDOWN or WEBLINK")
	f.StringVar(&flags.url, "url", "", "blob url")
	return cmd
}

func newDeleteNodeCmd(a *app) *cobra.Command {
	var (
		branch string
		path   []string
	)
	cmd := &cobra.Command{
		Use:   "delete-node <course>",
		Short: "Detach the last checksum of --path from its parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.repo.DeleteNode(a.ctx(cmd), args[0], branch, path)
			if err != nil {
				return err
			}
			root, err := c.BranchRoot(branch)
			if err != nil {
				return err
			}
			return a.printJSON(cmd, root)
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", dag.DefaultBranch, "branch to commit to")
	cmd.Flags().StringSliceVarP(&path, "path", "p", nil, "checksums from the branch root to the node")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newNodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes <course> [checksum...]",
		Short: "Print stored nodes; all of them when no checksum is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var checksums []string
			if len(args) > 1 {
				checksums = args[1:]
			}
			nodes, err := a.repo.FetchNodes(a.ctx(cmd), args[0], checksums)
			if nodes != nil {
				if perr := a.printJSON(cmd, nodes); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "log <course>",
		Short: "Print a branch's commits, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commits, err := a.repo.Log(a.ctx(cmd), args[0], branch)
			if err != nil {
				return err
			}
			for _, c := range commits {
				a.printf(cmd, "%s %s\n", c.Time().Format("2006-01-02 15:04:05.000"), c.Checksum)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", dag.DefaultBranch, "branch")
	return cmd
}

func newTreeCmd(a *app) *cobra.Command {
	var (
		branch   string
		showCIDs bool
	)
	cmd := &cobra.Command{
		Use:   "tree <course>",
		Short: "Print a branch's current tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.repo.GetCourse(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			root, err := c.BranchRoot(branch)
			if err != nil {
				return err
			}
			return dag.Walk(c.Nodes, root.Checksum, func(path []string, n dag.Node) error {
				id := n.Checksum
				if showCIDs {
					cid, err := n.CID()
					if err != nil {
						return err
					}
					id = dag.CIDString(cid)
				} else if len(id) > 12 {
					id = id[:12]
				}
				indent := strings.Repeat("  ", len(path)-1)
				if n.IsTree() {
					a.printf(cmd, "%s%s/ %s\n", indent, n.Title, id)
				} else {
					a.printf(cmd, "%s%s [%s] %s %s\n", indent, n.Title, n.BlobType, n.URL, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", dag.DefaultBranch, "branch")
	cmd.Flags().BoolVar(&showCIDs, "cid", false, "show CIDs instead of short checksums")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <course>",
		Short: "Re-hash every node and check every reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := a.repo.Verify(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			for _, p := range problems {
				a.printf(cmd, "%s\n", p)
			}
			if len(problems) > 0 {
				return errors.Errorf("%d problem(s) found", len(problems))
			}
			a.printf(cmd, "ok\n")
			return nil
		},
	}
}
