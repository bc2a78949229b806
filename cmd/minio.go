package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"M1Pose/config"
	"M1Pose/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储检查",
	Long:  `检查MinIO连接与产物镜像存储桶，可按会话前缀列出已镜像的分析产物。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		// 初始化MinIO客户端
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		client := storage.GetMinioClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 列出已镜像的产物
		fmt.Printf("\n列出存储桶中的产物 (前缀: %s)...\n", minioPrefix)
		count := 0
		var total int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("列出产物失败: %v", object.Err)
			}
			fmt.Printf("  %s (%d bytes)\n", object.Key, object.Size)
			count++
			total += object.Size
		}
		fmt.Printf("\n共 %d 个对象, %d bytes\n", count, total)

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按会话ID前缀过滤产物")

	minioCmd.Example = `  # 列出所有已镜像的产物
  m1pose_server minio

  # 按会话ID过滤
  m1pose_server minio -p "4f2c9b..."`
}
