package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"wanx-studio/app/config"
	"wanx-studio/app/logger"
	"wanx-studio/app/server"
	"wanx-studio/app/utils/dashscope"
	"wanx-studio/app/utils/downloader"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <task_id>",
	Short: "查询一次任务状态并同步到本地任务目录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New(cfg.Log)
		defer log.Close()

		provider := dashscope.New(cfg.DashScope)
		defer provider.Close()
		fetcher := downloader.New(&downloader.DownloadConfig{
			UserAgent: cfg.Download.UserAgent,
			Timeout:   cfg.Download.Timeout,
		})
		defer fetcher.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		remote, err := provider.GetTaskStatus(ctx, args[0])
		if err != nil {
			return err
		}

		tasks := server.NewTaskSyncService(cfg, fetcher, log)
		res := tasks.Reconcile(ctx, args[0], remote)
		if res.Record == nil {
			return fmt.Errorf("任务 %s 同步失败", args[0])
		}

		fmt.Fprintf(cmd.OutOrStdout(), "任务ID: %s\n状态: %s\n图片: %d (未下载 %d)\n已更新: %v\n",
			res.Record.TaskID, res.Record.Status, len(res.Record.Images), res.Record.PendingImages(), res.Saved)
		return nil
	},
}

var (
	tasksPage  int
	tasksLimit int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "列出本地任务记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.NewNop()

		tasks := server.NewTaskSyncService(cfg, downloader.New(nil), log)
		records, total := tasks.ListTasks(tasksPage, tasksLimit)
		if total == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "暂无任务记录")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "任务列表 (第%d页，共%d条记录):\n\n", tasksPage, total)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "任务ID\t状态\t图片\t创建时间\t提示词")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				rec.TaskID, rec.Status, len(rec.Images), rec.CreatedAt.Local().Format("2006-01-02 15:04:05"), rec.Prompt)
		}
		return tw.Flush()
	},
}

func init() {
	tasksCmd.Flags().IntVar(&tasksPage, "page", 1, "页码")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 50, "每页数量")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(tasksCmd)
}
